package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Pipeline *pipelineConfig
	Clients  *clientsConfig
}

type dbConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"pipeline"`
	User     string `envconfig:"DB_USER" default:"admin"`
	Password string `envconfig:"DB_PASS" default:"adminpass"`
}

type svcConfig struct {
	Address         string `envconfig:"EVENT_PIPELINE_ADDRESS" default:":8080"`
	MetricsAddress  string `envconfig:"EVENT_PIPELINE_METRICS_ADDRESS" default:":8081"`
	BaseUrl         string `envconfig:"EVENT_PIPELINE_BASE_URL" default:"http://localhost:8080"`
	LogLevel        string `envconfig:"EVENT_PIPELINE_LOG_LEVEL" default:"info"`
	MigrationFolder string `envconfig:"EVENT_PIPELINE_MIGRATIONS_FOLDER" default:""`
}

// pipelineConfig carries every tunable of the enrichment pipeline. The fuzzy
// and genre thresholds drifted between historical implementations, so none of
// them is hardcoded.
type pipelineConfig struct {
	WorkerCount   int           `envconfig:"EVENT_PIPELINE_WORKER_COUNT" default:"2"`
	PollInterval  time.Duration `envconfig:"EVENT_PIPELINE_POLL_INTERVAL" default:"10s"`
	JobTimeout    time.Duration `envconfig:"EVENT_PIPELINE_JOB_TIMEOUT" default:"10m"`
	StallWindow   time.Duration `envconfig:"EVENT_PIPELINE_STALL_WINDOW" default:"30m"`
	SweepInterval time.Duration `envconfig:"EVENT_PIPELINE_SWEEP_INTERVAL" default:"5m"`
	MaxRetries    int           `envconfig:"EVENT_PIPELINE_MAX_RETRIES" default:"5"`

	ArtistFuzzyThreshold   float64 `envconfig:"EVENT_PIPELINE_ARTIST_FUZZY_THRESHOLD" default:"0.85"`
	VenueFuzzyThreshold    float64 `envconfig:"EVENT_PIPELINE_VENUE_FUZZY_THRESHOLD" default:"0.80"`
	PromoterFuzzyThreshold float64 `envconfig:"EVENT_PIPELINE_PROMOTER_FUZZY_THRESHOLD" default:"0.80"`
	VenueMaxDistanceKM     float64 `envconfig:"EVENT_PIPELINE_VENUE_MAX_DISTANCE_KM" default:"1.0"`
	FestivalMaxDistanceKM  float64 `envconfig:"EVENT_PIPELINE_FESTIVAL_MAX_DISTANCE_KM" default:"10.0"`

	FestivalConfidenceThreshold int `envconfig:"EVENT_PIPELINE_FESTIVAL_CONFIDENCE_THRESHOLD" default:"50"`

	DayGap                  time.Duration `envconfig:"EVENT_PIPELINE_DAY_GAP" default:"4h"`
	TimetableMatchThreshold float64       `envconfig:"EVENT_PIPELINE_TIMETABLE_MATCH_THRESHOLD" default:"0.55"`

	GenreMinCount    int      `envconfig:"EVENT_PIPELINE_GENRE_MIN_COUNT" default:"2"`
	GenreCap         int      `envconfig:"EVENT_PIPELINE_GENRE_CAP" default:"3"`
	FestivalGenreCap int      `envconfig:"EVENT_PIPELINE_FESTIVAL_GENRE_CAP" default:"8"`
	GenreBanList     []string `envconfig:"EVENT_PIPELINE_GENRE_BAN_LIST" default:"techno,music,electronic music,dj,party,rave"`

	EnrichmentParallelism int           `envconfig:"EVENT_PIPELINE_ENRICHMENT_PARALLELISM" default:"3"`
	EnrichmentDelay       time.Duration `envconfig:"EVENT_PIPELINE_ENRICHMENT_DELAY" default:"250ms"`

	RetryAttempts  int           `envconfig:"EVENT_PIPELINE_RETRY_ATTEMPTS" default:"4"`
	RetryBaseDelay time.Duration `envconfig:"EVENT_PIPELINE_RETRY_BASE_DELAY" default:"1s"`
	RetryMaxDelay  time.Duration `envconfig:"EVENT_PIPELINE_RETRY_MAX_DELAY" default:"30s"`
}

// clientsConfig points at the external collaborators. Empty endpoints disable
// the optional ones (enrichment, timetables); scraping has no fallback.
type clientsConfig struct {
	HTTPTimeout time.Duration `envconfig:"EVENT_PIPELINE_CLIENT_TIMEOUT" default:"30s"`

	ScraperURL string `envconfig:"EVENT_PIPELINE_SCRAPER_URL" default:""`

	ArtistSearchURL          string  `envconfig:"EVENT_PIPELINE_ARTIST_SEARCH_URL" default:""`
	ArtistSearchTokenURL     string  `envconfig:"EVENT_PIPELINE_ARTIST_SEARCH_TOKEN_URL" default:""`
	ArtistSearchClientID     string  `envconfig:"EVENT_PIPELINE_ARTIST_SEARCH_CLIENT_ID" default:""`
	ArtistSearchClientSecret string  `envconfig:"EVENT_PIPELINE_ARTIST_SEARCH_CLIENT_SECRET" default:""`
	ArtistSearchAcceptScore  float64 `envconfig:"EVENT_PIPELINE_ARTIST_SEARCH_ACCEPT_SCORE" default:"0.6"`

	GeocoderURL    string `envconfig:"EVENT_PIPELINE_GEOCODER_URL" default:""`
	GeocoderAPIKey string `envconfig:"EVENT_PIPELINE_GEOCODER_API_KEY" default:""`

	TimetableDirectoryURL string `envconfig:"EVENT_PIPELINE_TIMETABLE_DIRECTORY_URL" default:""`

	ExtractorURL    string `envconfig:"EVENT_PIPELINE_EXTRACTOR_URL" default:""`
	ExtractorAPIKey string `envconfig:"EVENT_PIPELINE_EXTRACTOR_API_KEY" default:""`
	ExtractorModel  string `envconfig:"EVENT_PIPELINE_EXTRACTOR_MODEL" default:"gpt-4o-mini"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		// local development keeps its settings in a .env next to the binary
		_ = godotenv.Load()

		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault builds a config from defaults and current environment without
// touching the package singleton; test suites use it.
func NewDefault() *Config {
	cfg := new(Config)
	envconfig.MustProcess("", cfg)
	return cfg
}
