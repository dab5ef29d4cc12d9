// Package config loads gtrends job files and API credentials.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tlcaputi/gtrends/pkg/geo"
	"github.com/tlcaputi/gtrends/pkg/merge"
	"github.com/tlcaputi/gtrends/pkg/plan"
	"github.com/tlcaputi/gtrends/pkg/sink/redisstore"
	"github.com/tlcaputi/gtrends/pkg/trends"
)

// Environment variables holding API credentials.
const (
	EnvAPIKey     = "GTRENDS_API_KEY"
	EnvServer     = "GTRENDS_SERVER"
	EnvAPIVersion = "GTRENDS_API_VERSION"
)

// Output lists where finished tables go. Dir is always written; SQLite and
// RedisAddr are optional.
type Output struct {
	Dir         string `yaml:"dir"`
	SQLite      string `yaml:"sqlite"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
}

// Job is the decoded job file.
type Job struct {
	Terms         []string `yaml:"terms"`
	Names         []string `yaml:"names"`
	Start         string   `yaml:"start"`
	End           string   `yaml:"end"`
	Granularities []string `yaml:"granularities"`
	StepYears     int      `yaml:"step_years"`
	StepMonths    int      `yaml:"step_months"`
	StepDays      int      `yaml:"step_days"`
	BatchSize     int      `yaml:"batch_size"`

	geo.Request `yaml:",inline"`

	StripStatePrefix *bool  `yaml:"strip_state_prefix"`
	Join             string `yaml:"join"`
	Output           Output `yaml:"output"`
}

// Load reads and decodes the job file at path.
func Load(path string) (*Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open job file: %w", err)
	}
	defer f.Close()

	job, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return job, nil
}

// Decode parses a YAML job. Unknown keys are rejected. Defaults are applied
// to fields left unset.
func Decode(r io.Reader) (*Job, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var job Job
	if err := dec.Decode(&job); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	job.applyDefaults()
	return &job, nil
}

func (j *Job) applyDefaults() {
	if j.StepYears == 0 && j.StepMonths == 0 && j.StepDays == 0 {
		j.StepYears = 1
	}
	if j.BatchSize == 0 {
		j.BatchSize = plan.DefaultBatchSize
	}
	if j.Join == "" {
		j.Join = string(merge.JoinInner)
	}
	if j.StripStatePrefix == nil {
		strip := true
		j.StripStatePrefix = &strip
	}
	if j.Output.Dir == "" {
		j.Output.Dir = "."
	}
	if j.Output.RedisPrefix == "" {
		j.Output.RedisPrefix = redisstore.DefaultPrefix
	}
}

// PlanConfig converts the job into a plan configuration. Names default to
// the terms themselves when omitted. Range checks are left to plan.New.
func (j *Job) PlanConfig() (plan.Config, error) {
	start, err := parseDate("start", j.Start)
	if err != nil {
		return plan.Config{}, err
	}
	end, err := parseDate("end", j.End)
	if err != nil {
		return plan.Config{}, err
	}
	grans, err := plan.ParseGranularities(j.Granularities)
	if err != nil {
		return plan.Config{}, err
	}

	names := j.Names
	if len(names) == 0 {
		names = j.Terms
	}

	return plan.Config{
		Terms:         j.Terms,
		Names:         names,
		Start:         start,
		End:           end,
		Granularities: grans,
		Step:          plan.Step{Years: j.StepYears, Months: j.StepMonths, Days: j.StepDays},
		BatchSize:     j.BatchSize,
		Geographies:   j.Request.Expand(),
	}, nil
}

// MergeOptions returns the join and naming options of the job.
func (j *Job) MergeOptions() (merge.Options, error) {
	mode, err := merge.ParseJoinMode(j.Join)
	if err != nil {
		return merge.Options{}, err
	}
	opts := merge.DefaultOptions()
	opts.Join = mode
	if j.StripStatePrefix != nil {
		opts.StripStatePrefix = *j.StripStatePrefix
	}
	return opts, nil
}

func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &plan.PreconditionError{Field: field, Reason: "date is required"}
	}
	t, err := time.Parse(plan.DateLayout, value)
	if err != nil {
		return time.Time{}, &plan.PreconditionError{Field: field, Reason: fmt.Sprintf("%q is not YYYY-MM-DD", value)}
	}
	return t, nil
}

// Credentials locate and authorize the remote API.
type Credentials struct {
	APIKey     string
	Server     string
	APIVersion string
}

// LoadCredentials reads credentials from the environment after loading
// envFile. An empty envFile loads ".env" when present. Variables already set
// in the process environment win over the file.
func LoadCredentials(envFile string) (Credentials, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Credentials{}, fmt.Errorf("load env file: %w", err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, fmt.Errorf("load .env: %w", err)
	}

	creds := Credentials{
		APIKey:     os.Getenv(EnvAPIKey),
		Server:     getEnv(EnvServer, trends.DefaultServer),
		APIVersion: getEnv(EnvAPIVersion, trends.DefaultAPIVersion),
	}
	if creds.APIKey == "" {
		return Credentials{}, &plan.PreconditionError{Field: "api_key", Reason: EnvAPIKey + " is not set"}
	}
	return creds, nil
}

// TrendsConfig returns a client configuration for these credentials.
func (c Credentials) TrendsConfig() trends.Config {
	cfg := trends.DefaultConfig(c.APIKey)
	cfg.Server = c.Server
	cfg.APIVersion = c.APIVersion
	return cfg
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
