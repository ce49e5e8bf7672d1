package config

import (
	"os"
	"strconv"
	"time"
)

// HTTPConfig has no BasePath: unlike a single-tree WebDAV server, the
// CalDAV and CardDAV routing trees live at the fixed, protocol-significant
// locations /caldav and /carddav (RFC 4791/6352 well-known discovery),
// parsed by internal/dav.ParsePath — there is no single mount point to
// relocate.
type HTTPConfig struct {
	Addr        string
	MaxICSBytes int64
	MaxVCFBytes int64
}

// AuthConfig controls the Basic + app-token authentication plane (spec
// §4.7). There is no directory or bearer/OIDC collaborator here: a
// principal's password and every app token are argon2id hashes in the
// Store, checked in constant time.
type AuthConfig struct {
	EnableBasic    bool
	ArgonTime      uint32
	ArgonMemoryKiB uint32
	ArgonThreads   uint8
	ArgonKeyLen    uint32
	ArgonSaltLen   uint32
}

type StorageConfig struct {
	// Type selects the Store backend. "memory" is the only reference
	// implementation shipped; a future durable backend would plug in here
	// without changing internal/store's interfaces.
	Type string
}

// PushConfig tunes the DAV-Push notifier (spec §4.8): how long a
// subscription may go unrenewed, how long changes are batched before a
// push is sent, and how many deliveries to retry before giving up.
type PushConfig struct {
	SubscriptionTTL  time.Duration
	CoalesceWindow   time.Duration
	DeliveryTimeout  time.Duration
	MaxDeliveryTries int
}

type Config struct {
	Timezone string
	HTTP     HTTPConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Push     PushConfig
	ICS      ICSConfig
	LogLevel string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvUint(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func Load() (*Config, error) {
	return &Config{
		HTTP: HTTPConfig{
			Addr:        getenv("HTTP_ADDR", ":8080"),
			MaxICSBytes: getenvInt64("HTTP_MAX_ICS_BYTES", 1<<20),
			MaxVCFBytes: getenvInt64("HTTP_MAX_VCF_BYTES", 1<<20),
		},
		Auth: AuthConfig{
			EnableBasic:    getenv("AUTH_BASIC", "true") == "true",
			ArgonTime:      uint32(getenvUint("AUTH_ARGON_TIME", 1)),
			ArgonMemoryKiB: uint32(getenvUint("AUTH_ARGON_MEMORY_KIB", 64*1024)),
			ArgonThreads:   uint8(getenvUint("AUTH_ARGON_THREADS", 4)),
			ArgonKeyLen:    uint32(getenvUint("AUTH_ARGON_KEY_LEN", 32)),
			ArgonSaltLen:   uint32(getenvUint("AUTH_ARGON_SALT_LEN", 16)),
		},
		Storage: StorageConfig{
			Type: getenv("STORAGE_TYPE", "memory"),
		},
		Push: PushConfig{
			SubscriptionTTL:  getenvDuration("PUSH_SUBSCRIPTION_TTL", 24*time.Hour),
			CoalesceWindow:   getenvDuration("PUSH_COALESCE_WINDOW", 100*time.Millisecond),
			DeliveryTimeout:  getenvDuration("PUSH_DELIVERY_TIMEOUT", 10*time.Second),
			MaxDeliveryTries: int(getenvUint("PUSH_MAX_DELIVERY_TRIES", 1)),
		},
		ICS: ICSConfig{
			CompanyName: getenv("ICS_COMPANY_NAME", "hearthdav"),
			ProductName: getenv("ICS_PRODUCT_NAME", "caldavd"),
			Version:     getenv("ICS_VERSION", "1.0.0"),
			Language:    getenv("ICS_LANGUAGE", "EN"),
		},
		Timezone: getenv("TZ", "UTC"),
		LogLevel: getenv("LOG_LEVEL", "info"),
	}, nil
}
