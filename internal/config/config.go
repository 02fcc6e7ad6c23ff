package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log      LogConfig         `yaml:"log" mapstructure:"log"`
	CRS      CRSConfig         `yaml:"crs" mapstructure:"crs"`
	Sources  SourcesConfig     `yaml:"sources" mapstructure:"sources"`
	Fields   FieldsConfig      `yaml:"fields" mapstructure:"fields"`
	Raster   RasterConfig      `yaml:"raster" mapstructure:"raster"`
	Overlay  OverlayConfig     `yaml:"overlay" mapstructure:"overlay"`
	Access   AccessConfig      `yaml:"access" mapstructure:"access"`
	Capitals CapitalsConfig    `yaml:"capitals" mapstructure:"capitals"`
	Output   OutputConfig      `yaml:"output" mapstructure:"output"`
	Publish  PublishConfig     `yaml:"publish" mapstructure:"publish"`
	Server   ServerConfig      `yaml:"server" mapstructure:"server"`
	Classes  map[string][]Band `yaml:"classes" mapstructure:"classes"`
}

// CRSConfig names the computation and presentation coordinate systems.
type CRSConfig struct {
	Metric  string `yaml:"metric" mapstructure:"metric"`
	Display string `yaml:"display" mapstructure:"display"`
}

// SourceConfig locates one input dataset.
type SourceConfig struct {
	Path      string `yaml:"path" mapstructure:"path"`
	AssumeCRS string `yaml:"assume_crs" mapstructure:"assume_crs"`
	Charset   string `yaml:"charset" mapstructure:"charset"`
	Repair    bool   `yaml:"repair" mapstructure:"repair"`
}

// SourcesConfig lists the pipeline inputs.
type SourcesConfig struct {
	Railways       SourceConfig `yaml:"railways" mapstructure:"railways"`
	Regions        SourceConfig `yaml:"regions" mapstructure:"regions"`
	Provinces      SourceConfig `yaml:"provinces" mapstructure:"provinces"`
	Municipalities SourceConfig `yaml:"municipalities" mapstructure:"municipalities"`
	Ruggedness     SourceConfig `yaml:"ruggedness" mapstructure:"ruggedness"`
	Wheat          SourceConfig `yaml:"wheat" mapstructure:"wheat"`
}

// FieldsConfig maps source attribute names.
type FieldsConfig struct {
	RailID        string `yaml:"rail_id" mapstructure:"rail_id"`
	RailYear      string `yaml:"rail_year" mapstructure:"rail_year"`
	RailType      string `yaml:"rail_type" mapstructure:"rail_type"`
	RailGauge     string `yaml:"rail_gauge" mapstructure:"rail_gauge"`
	RegionName    string `yaml:"region_name" mapstructure:"region_name"`
	ProvinceName  string `yaml:"province_name" mapstructure:"province_name"`
	MunicipalName string `yaml:"municipal_name" mapstructure:"municipal_name"`
	MunicipalID   string `yaml:"municipal_id" mapstructure:"municipal_id"`
	Capital       string `yaml:"capital" mapstructure:"capital"`
}

// RasterConfig configures clipping and vectorization.
type RasterConfig struct {
	BlockRows int     `yaml:"block_rows" mapstructure:"block_rows"`
	Workers   int     `yaml:"workers" mapstructure:"workers"`
	Tolerance float64 `yaml:"tolerance" mapstructure:"tolerance"`
}

// Band is one classification threshold: values >= Min (> Min when Exclusive)
// get Class. Bands are tested in order.
type Band struct {
	Min       float64 `yaml:"min" mapstructure:"min"`
	Exclusive bool    `yaml:"exclusive" mapstructure:"exclusive"`
	Class     int     `yaml:"class" mapstructure:"class"`
}

// OverlayConfig configures length attribution checks.
type OverlayConfig struct {
	EpsilonM       float64 `yaml:"epsilon_m" mapstructure:"epsilon_m"`
	HardThresholdM float64 `yaml:"hard_threshold_m" mapstructure:"hard_threshold_m"`
	Workers        int     `yaml:"workers" mapstructure:"workers"`
}

// AccessConfig configures the accessibility year loop.
type AccessConfig struct {
	StartYear       int  `yaml:"start_year" mapstructure:"start_year"`
	EndYear         int  `yaml:"end_year" mapstructure:"end_year"`
	Step            int  `yaml:"step" mapstructure:"step"`
	Workers         int  `yaml:"workers" mapstructure:"workers"`
	RequireCapitals bool `yaml:"require_capitals" mapstructure:"require_capitals"`
}

// CapitalsConfig designates regional capitals by municipality name.
type CapitalsConfig struct {
	File   string            `yaml:"file" mapstructure:"file"`
	Region map[string]string `yaml:"region" mapstructure:"region"`
}

// OutputConfig configures artifact generation.
type OutputConfig struct {
	Dir    string `yaml:"dir" mapstructure:"dir"`
	XLSX   bool   `yaml:"xlsx" mapstructure:"xlsx"`
	SQLite bool   `yaml:"sqlite" mapstructure:"sqlite"`
}

// PublishConfig configures the optional PostGIS publisher.
type PublishConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Schema      string `yaml:"schema" mapstructure:"schema"`
	BatchSize   int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// ServerConfig configures the artifact server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultRegionCapitals maps the capital municipality of each Italian region
// to the region name used by the boundary sources.
var DefaultRegionCapitals = map[string]string{
	"Torino":     "Piemonte",
	"Aosta":      "Valle d'Aosta",
	"Milano":     "Lombardia",
	"Trento":     "Trentino-Alto Adige/Südtirol",
	"Venezia":    "Veneto",
	"Trieste":    "Friuli-Venezia Giulia",
	"Genova":     "Liguria",
	"Bologna":    "Emilia-Romagna",
	"Firenze":    "Toscana",
	"Perugia":    "Umbria",
	"Ancona":     "Marche",
	"Roma":       "Lazio",
	"L'Aquila":   "Abruzzo",
	"Campobasso": "Molise",
	"Napoli":     "Campania",
	"Bari":       "Puglia",
	"Potenza":    "Basilicata",
	"Catanzaro":  "Calabria",
	"Palermo":    "Sicilia",
	"Cagliari":   "Sardegna",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ATLAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("crs.metric", "EPSG:32632")
	v.SetDefault("crs.display", "EPSG:4326")
	v.SetDefault("sources.railways.path", "data/ferrovie/Ferrovie.shp")
	v.SetDefault("sources.railways.charset", "utf-8")
	v.SetDefault("sources.regions.path", "data/limits_IT_regions.geojson")
	v.SetDefault("sources.regions.assume_crs", "EPSG:4326")
	v.SetDefault("sources.provinces.path", "data/limits_IT_provinces.geojson")
	v.SetDefault("sources.provinces.assume_crs", "EPSG:4326")
	v.SetDefault("sources.municipalities.path", "data/limits_IT_municipalities.geojson")
	v.SetDefault("sources.municipalities.assume_crs", "EPSG:4326")
	v.SetDefault("sources.ruggedness.path", "data/tri.asc")
	v.SetDefault("sources.ruggedness.assume_crs", "EPSG:4326")
	v.SetDefault("sources.wheat.path", "data/wheat.asc")
	v.SetDefault("sources.wheat.assume_crs", "EPSG:4326")
	v.SetDefault("fields.rail_id", "ID")
	v.SetDefault("fields.rail_year", "YearConstr")
	v.SetDefault("fields.rail_type", "MAINLIGHT")
	v.SetDefault("fields.rail_gauge", "GAUGE")
	v.SetDefault("fields.region_name", "reg_name")
	v.SetDefault("fields.province_name", "prov_name")
	v.SetDefault("fields.municipal_name", "name")
	v.SetDefault("fields.municipal_id", "com_istat_code")
	v.SetDefault("raster.block_rows", 256)
	v.SetDefault("raster.workers", 4)
	v.SetDefault("raster.tolerance", 0.0001)
	v.SetDefault("overlay.epsilon_m", 0.5)
	v.SetDefault("overlay.hard_threshold_m", 1000.0)
	v.SetDefault("overlay.workers", 4)
	v.SetDefault("access.start_year", 1839)
	v.SetDefault("access.end_year", 1913)
	v.SetDefault("access.step", 5)
	v.SetDefault("access.workers", 4)
	v.SetDefault("access.require_capitals", true)
	v.SetDefault("output.dir", "out")
	v.SetDefault("output.xlsx", true)
	v.SetDefault("output.sqlite", true)
	v.SetDefault("publish.schema", "atlas")
	v.SetDefault("publish.batch_size", 5000)
	v.SetDefault("server.port", 8080)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if len(cfg.Capitals.Region) == 0 {
		cfg.Capitals.Region = DefaultRegionCapitals
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
