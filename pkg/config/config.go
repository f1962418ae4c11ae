package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DateLayout is the layout accepted for semester calendar dates.
	DateLayout = "2006-01-02"
)

// ErrInvalidSemester is returned when the semester calendar cannot be parsed.
var ErrInvalidSemester = errors.New("invalid semester configuration")

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	Semester  SemesterConfig
	Materials MaterialsConfig
	Presence  PresenceConfig
	Notices   NoticesConfig
	Admin     AdminConfig
	Exports   ExportsConfig
	Realtime  RealtimeConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SemesterConfig holds the static academic calendar. End dates are inclusive of the whole day.
type SemesterConfig struct {
	Location      *time.Location
	Start         time.Time
	End           time.Time
	MidtermStart  time.Time
	MidtermEnd    time.Time
	FinalStart    time.Time
	RegularName   string
	MidtermName   string
	FinalPrepName string
	FinalName     string
	BreakName     string
}

// MaterialsConfig tunes the exam material relevance policy.
type MaterialsConfig struct {
	MidtermRelevanceFloor int
	CacheTTL              time.Duration
}

// PresenceConfig drives heartbeat cadence and staleness eviction.
type PresenceConfig struct {
	HeartbeatInterval time.Duration
	RefreshInterval   time.Duration
	StaleAfter        time.Duration
	CountedPage       string
}

// NoticesConfig governs the notice board.
type NoticesConfig struct {
	CacheTTL     time.Duration
	PollInterval time.Duration
}

// AdminConfig configures the password gate in front of the admin panel.
type AdminConfig struct {
	PasswordHash string
}

// ExportsConfig controls catalog export rendering and storage.
type ExportsConfig struct {
	Enabled           bool
	StorageDir        string
	SignedURLSecret   string
	SignedURLTTL      time.Duration
	ResultTTL         time.Duration
	CleanupInterval   time.Duration
	WorkerConcurrency int
	WorkerRetries     int
}

// RealtimeConfig configures the change feed.
type RealtimeConfig struct {
	Channel      string
	WriteTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	semester, err := parseSemester(v)
	if err != nil {
		return nil, appErrors.Configuration(err, "semester calendar")
	}
	cfg.Semester = semester

	floor := v.GetInt("MATERIALS_MIDTERM_RELEVANCE_FLOOR")
	if floor < 0 || floor > 100 {
		floor = 70
	}
	cfg.Materials = MaterialsConfig{
		MidtermRelevanceFloor: floor,
		CacheTTL:              parseDuration(v.GetString("MATERIALS_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Presence = PresenceConfig{
		HeartbeatInterval: parseDuration(v.GetString("PRESENCE_HEARTBEAT_INTERVAL"), 5*time.Second),
		RefreshInterval:   parseDuration(v.GetString("PRESENCE_REFRESH_INTERVAL"), 10*time.Second),
		StaleAfter:        parseDuration(v.GetString("PRESENCE_STALE_AFTER"), 30*time.Second),
		CountedPage:       v.GetString("PRESENCE_COUNTED_PAGE"),
	}

	cfg.Notices = NoticesConfig{
		CacheTTL:     parseDuration(v.GetString("NOTICES_CACHE_TTL"), time.Minute),
		PollInterval: parseDuration(v.GetString("NOTICES_POLL_INTERVAL"), 2*time.Minute),
	}

	cfg.Admin = AdminConfig{PasswordHash: v.GetString("ADMIN_PASSWORD_HASH")}

	cfg.Exports = ExportsConfig{
		Enabled:           v.GetBool("ENABLE_EXPORTS"),
		StorageDir:        v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret:   v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:      parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), time.Hour),
		ResultTTL:         parseDuration(v.GetString("EXPORTS_RESULT_TTL"), 24*time.Hour),
		CleanupInterval:   parseDuration(v.GetString("EXPORTS_CLEANUP_INTERVAL"), time.Hour),
		WorkerConcurrency: v.GetInt("EXPORTS_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("EXPORTS_WORKER_RETRIES"),
	}

	cfg.Realtime = RealtimeConfig{
		Channel:      v.GetString("REALTIME_CHANNEL"),
		WriteTimeout: parseDuration(v.GetString("REALTIME_WRITE_TIMEOUT"), 5*time.Second),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "campus-portal")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SEMESTER_TIMEZONE", "UTC")
	v.SetDefault("SEMESTER_START", "2025-07-15")
	v.SetDefault("SEMESTER_END", "2025-12-20")
	v.SetDefault("SEMESTER_MIDTERM_START", "2025-09-14")
	v.SetDefault("SEMESTER_MIDTERM_END", "2025-09-24")
	v.SetDefault("SEMESTER_FINAL_START", "2025-12-01")
	v.SetDefault("SEMESTER_REGULAR_NAME", "Regular Classes")
	v.SetDefault("SEMESTER_MIDTERM_NAME", "Mid-term Examinations")
	v.SetDefault("SEMESTER_FINAL_PREP_NAME", "Final Exam Preparation")
	v.SetDefault("SEMESTER_FINAL_NAME", "Final Examinations")
	v.SetDefault("SEMESTER_BREAK_NAME", "Semester Break")

	v.SetDefault("MATERIALS_MIDTERM_RELEVANCE_FLOOR", 70)
	v.SetDefault("MATERIALS_CACHE_TTL", "5m")

	v.SetDefault("PRESENCE_HEARTBEAT_INTERVAL", "5s")
	v.SetDefault("PRESENCE_REFRESH_INTERVAL", "10s")
	v.SetDefault("PRESENCE_STALE_AFTER", "30s")
	v.SetDefault("PRESENCE_COUNTED_PAGE", "student")

	v.SetDefault("NOTICES_CACHE_TTL", "1m")
	v.SetDefault("NOTICES_POLL_INTERVAL", "2m")

	v.SetDefault("ADMIN_PASSWORD_HASH", "")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "1h")
	v.SetDefault("EXPORTS_RESULT_TTL", "24h")
	v.SetDefault("EXPORTS_CLEANUP_INTERVAL", "1h")
	v.SetDefault("EXPORTS_WORKER_CONCURRENCY", 1)
	v.SetDefault("EXPORTS_WORKER_RETRIES", 3)

	v.SetDefault("REALTIME_CHANNEL", "campus-portal:changes")
	v.SetDefault("REALTIME_WRITE_TIMEOUT", "5s")
}

// SetDefaults exposes the default values so tests and tools can build a Config without a .env file.
func SetDefaults(v *viper.Viper) {
	setDefaults(v)
}

func parseSemester(v *viper.Viper) (SemesterConfig, error) {
	loc, err := time.LoadLocation(v.GetString("SEMESTER_TIMEZONE"))
	if err != nil {
		return SemesterConfig{}, fmt.Errorf("%w: timezone: %v", ErrInvalidSemester, err)
	}

	dates := map[string]time.Time{}
	for _, key := range []string{"SEMESTER_START", "SEMESTER_END", "SEMESTER_MIDTERM_START", "SEMESTER_MIDTERM_END", "SEMESTER_FINAL_START"} {
		raw := strings.TrimSpace(v.GetString(key))
		if raw == "" {
			return SemesterConfig{}, fmt.Errorf("%w: %s is required", ErrInvalidSemester, key)
		}
		parsed, err := time.ParseInLocation(DateLayout, raw, loc)
		if err != nil {
			return SemesterConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidSemester, key, err)
		}
		dates[key] = parsed
	}

	return SemesterConfig{
		Location:      loc,
		Start:         dates["SEMESTER_START"],
		End:           EndOfDay(dates["SEMESTER_END"]),
		MidtermStart:  dates["SEMESTER_MIDTERM_START"],
		MidtermEnd:    EndOfDay(dates["SEMESTER_MIDTERM_END"]),
		FinalStart:    dates["SEMESTER_FINAL_START"],
		RegularName:   v.GetString("SEMESTER_REGULAR_NAME"),
		MidtermName:   v.GetString("SEMESTER_MIDTERM_NAME"),
		FinalPrepName: v.GetString("SEMESTER_FINAL_PREP_NAME"),
		FinalName:     v.GetString("SEMESTER_FINAL_NAME"),
		BreakName:     v.GetString("SEMESTER_BREAK_NAME"),
	}, nil
}

// OrderingProblems lists calendar boundaries that are out of order. The clock
// still answers for such a calendar, so these are warnings, not load errors.
func (s SemesterConfig) OrderingProblems() []string {
	checks := []struct {
		ok   bool
		desc string
	}{
		{!s.MidtermStart.Before(s.Start), "midterm starts before the semester"},
		{!s.MidtermEnd.Before(s.MidtermStart), "midterm ends before it starts"},
		{s.FinalStart.After(s.MidtermEnd), "finals start before the midterm ends"},
		{!s.End.Before(s.FinalStart), "semester ends before finals start"},
	}
	var problems []string
	for _, c := range checks {
		if !c.ok {
			problems = append(problems, c.desc)
		}
	}
	return problems
}

// EndOfDay returns the last instant of the calendar day containing t.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
