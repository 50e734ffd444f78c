// plain "key value" configuration file reader (whitespace-separated, one
// setting per line).
//
// grounded on original_source/pool/connection_pool.cpp's constructor, which
// scans ./connection_pool.cnf line by line picking out "host", "user",
// "port" etc by the first whitespace-delimited token. This keeps the same
// flat, line-oriented format rather than introducing a structured config
// dialect (toml/yaml/json) the pack never shows for this concern.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DB holds the connection-pool settings read from the config file's
// db_driver, db_dsn and max_conn keys.
type DB struct {
	Driver  string
	DSN     string
	MaxConn int
}

// Server holds the reactor/worker-pool tuning knobs.
type Server struct {
	Port          int
	WorkerThreads int
	MaxRequests   int
	TimeSlotSecs  int
	LogDir        string
	LogMaxLines   int
	LogQueueSize  int
	DocRoot       string
	TriggerMode   string // "level" (default) or "edge"
}

// Config is the whole of a loaded configuration file.
type Config struct {
	Server Server
	DB     DB
}

// Defaults mirror the original's compiled-in constants (TIMESLOT 5,
// thread_pool(8, 10000), log init("./", 800000, 8)) so a missing config
// file still produces a runnable server.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:          9006,
			WorkerThreads: 8,
			MaxRequests:   10000,
			TimeSlotSecs:  5,
			LogDir:        "./logs",
			LogMaxLines:   800000,
			LogQueueSize:  8,
			DocRoot:       "./root",
			TriggerMode:   "level",
		},
		DB: DB{
			Driver:  "sqlite3",
			DSN:     "./webserver.db",
			MaxConn: 8,
		},
	}
}

// Load reads a flat "key value" config file, one setting per line, blank
// lines and "#"-prefixed lines ignored. Unknown keys are ignored rather
// than rejected, matching the original's getline-and-skip behavior.
func Load(path string) (Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key, val := fields[0], strings.Join(fields[1:], " ")
		if err := cfg.apply(key, val); err != nil {
			return cfg, fmt.Errorf("config: %q: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return cfg, fmt.Errorf("config: read %q: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) apply(key, val string) error {
	switch key {
	case "port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.Server.Port = n
	case "worker_threads":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.Server.WorkerThreads = n
	case "max_requests":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.Server.MaxRequests = n
	case "timeslot_secs":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.Server.TimeSlotSecs = n
	case "log_dir":
		cfg.Server.LogDir = val
	case "log_max_lines":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.Server.LogMaxLines = n
	case "log_queue_size":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.Server.LogQueueSize = n
	case "doc_root":
		cfg.Server.DocRoot = val
	case "trigger_mode":
		if val != "level" && val != "edge" {
			return fmt.Errorf("trigger_mode must be %q or %q, got %q", "level", "edge", val)
		}
		cfg.Server.TriggerMode = val
	case "db_driver":
		cfg.DB.Driver = val
	case "db_dsn":
		cfg.DB.DSN = val
	case "max_conn":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		cfg.DB.MaxConn = n
	default:
		// unrecognized keys are ignored, matching connection_pool.cpp
	}
	return nil
}
