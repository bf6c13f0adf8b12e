package wiki

type tokenResponse struct {
	Query struct {
		Tokens struct {
			LoginToken string `json:"logintoken"`
		} `json:"tokens"`
	} `json:"query"`
}

type loginResponse struct {
	Login struct {
		Result string `json:"result"`
		Reason string `json:"reason"`
	} `json:"login"`
}

type searchResponse struct {
	Query struct {
		Search []struct {
			Title string `json:"title"`
		} `json:"search"`
	} `json:"query"`
}

type extractResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			FullURL string `json:"fullurl"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}
