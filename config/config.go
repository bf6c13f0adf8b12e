package config

import (
	"fmt"
	"reflect"
	"time"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	EnvFile         = ".env"
	EnvConfigPrefix = "MELODIA"

	// DiscogsPerPageMax is the largest page size the catalog API accepts.
	DiscogsPerPageMax = 100
)

type Config struct {
	Version          kong.VersionFlag `help:"Show version and exit" short:"v" env:"-"`
	EnvName          string           `kong:"help='Environment name.',default='dev'"`
	ServiceName      string           `kong:"help='Service name.',default='melodia-harvester'"`
	HealthFreqSec    int              `kong:"help='Health check frequency in seconds.',default=10"`
	EnablePprof      bool             `kong:"help='Enable pprof endpoints (http://$apiListenAddress/debug).',default=false"`
	APIListenAddress string           `kong:"help='API listen address (serves health, progress, version).',default=:8080"`
	LogConfig        string           `kong:"help='Logging config to use.',enum='dev,prod',default='dev'"`

	NewRelicAppName    string `kong:"help='New Relic application name.',default='melodia-harvester (DEV)'"`
	NewRelicLicenseKey string `kong:"help='New Relic license key.'"`

	Country  string `kong:"help='Country filter used for the catalog search.',default='France'"`
	MaxItems int    `kong:"help='Total release budget; the crawler never fetches a page starting past this.',default=10000000"`
	PageSize int    `kong:"help='Catalog search page size.',default=100"`

	TracksOutputPath string `kong:"help='Path of the line-delimited track record output file.',default='data/tracks.jsonl'"`
	TracksInfoDir    string `kong:"help='Directory for per-track biography text files.',default='data/tracks_infos'"`
	ArtistsInfoDir   string `kong:"help='Directory for per-artist biography text files.',default='data/artists_infos'"`

	DiscogsAPIURL string        `kong:"help='Catalog API base URL.',default='https://api.discogs.com'"`
	DiscogsToken  string        `kong:"help='Catalog API personal access token (anonymous tier if empty).'"`
	DiscogsDelay  time.Duration `kong:"help='Minimum spacing between catalog API requests.',default=1s"`

	WikiAPIURL   string        `kong:"help='Content API endpoint.',default='https://en.wikipedia.org/w/api.php'"`
	WikiUsername string        `kong:"help='Content API bot username (anonymous if empty).'"`
	WikiPassword string        `kong:"help='Content API bot password.'"`
	WikiDelay    time.Duration `kong:"help='Minimum spacing between content API requests.',default=600ms"`

	ContentWorkers int    `kong:"help='Number of concurrent content enrichment workers.',default=4"`
	UserAgent      string `kong:"help='User-Agent header sent to both APIs.',default='melodia-harvester/1.0'"`

	KongContext *kong.Context `kong:"-"`
}

func New(version string) *Config {
	if err := godotenv.Load(EnvFile); err != nil {
		zap.L().Warn("unable to load dotenv file",
			zap.String("err", err.Error()))
	}

	cfg := &Config{}
	cfg.KongContext = kong.Parse(
		cfg,
		kong.Name("melodia-harvester"),
		kong.Description("Catalog + biography harvesting pipeline"),
		kong.DefaultEnvars(EnvConfigPrefix),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": version,
		},
	)

	return cfg
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("Config cannot be nil")
	}

	if c.Country == "" {
		return errors.New("Country cannot be empty")
	}

	if c.MaxItems < 1 {
		return errors.New("MaxItems must be >= 1")
	}

	if c.PageSize < 1 || c.PageSize > DiscogsPerPageMax {
		return errors.Errorf("PageSize must be between 1 and %d", DiscogsPerPageMax)
	}

	if c.TracksOutputPath == "" {
		return errors.New("TracksOutputPath cannot be empty")
	}

	if c.TracksInfoDir == "" || c.ArtistsInfoDir == "" {
		return errors.New("TracksInfoDir and ArtistsInfoDir cannot be empty")
	}

	if c.DiscogsDelay <= 0 || c.WikiDelay <= 0 {
		return errors.New("request delays must be > 0")
	}

	if c.ContentWorkers < 1 {
		return errors.New("ContentWorkers must be >= 1")
	}

	return nil
}

func (c *Config) GetMap() map[string]string {
	fields := make(map[string]string)

	val := reflect.ValueOf(c)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := val.Field(i)
		fields[field.Name] = fmt.Sprintf("%v", value)
	}

	return fields
}
