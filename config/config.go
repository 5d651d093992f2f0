package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppName    string
	AppVersion string
	AppPort    string
	AppHost    string
	LogLevel   string
	LogFormat  string
	// Backend selects the protocol implementation: dcmtk, dimse or filesystem
	Backend string
	// DICOM peer configuration
	ClientAETitle string
	RemoteAETitle string
	RemoteHost    string
	RemotePort    int
	// Inbound storage listener
	ListenerAETitle string
	ListenerPort    int
	// Directories
	DicomDir       string
	DicomSourceDir string
	// dcmtk backend
	DcmtkPath      string
	DcmtkExtraArgs []string
	// Operation tuning
	TimeoutSeconds          int
	RetryTimeoutsWithPad    bool
	SearchWildcard          bool
	SearchQueryType         string
	SplitSearchAssociations bool
	ThumbnailSize           int
}

func LoadConfig() *Config {
	return &Config{
		AppName:    getEnv("APP_NAME", "pacsgo"),
		AppVersion: getEnv("APP_VERSION", "1.0.0"),
		AppPort:    getEnv("APP_PORT", "8081"),
		AppHost:    getEnv("APP_HOST", "0.0.0.0"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		Backend:    getEnv("PACS_BACKEND", "dcmtk"),
		// DICOM peer configuration
		ClientAETitle: getEnv("CLIENT_AETITLE", "PACSGO"),
		RemoteAETitle: getEnv("REMOTE_AETITLE", "ANY-SCP"),
		RemoteHost:    getEnv("REMOTE_HOST", "localhost"),
		RemotePort:    getEnvAsInt("REMOTE_PORT", 11112),
		// Inbound storage listener
		ListenerAETitle: getEnv("LISTENER_AETITLE", "PACSGO"),
		ListenerPort:    getEnvAsInt("LISTENER_PORT", 11113),
		// Directories
		DicomDir:       getEnv("DICOM_DIR", "/tmp/pacsgo/dicom"),
		DicomSourceDir: getEnv("DICOM_SOURCE_DIR", "/tmp/pacsgo/source"),
		// dcmtk backend
		DcmtkPath:      getEnv("DCMTK_PATH", "/usr/bin"),
		DcmtkExtraArgs: getEnvAsSlice("DCMTK_EXTRA_ARGS", nil),
		// Operation tuning
		TimeoutSeconds:          getEnvAsInt("PACS_TIMEOUT_SECONDS", 30),
		RetryTimeoutsWithPad:    getEnvAsBool("RETRY_TIMEOUTS_WITH_PAD", true),
		SearchWildcard:          getEnvAsBool("SEARCH_WILDCARD", true),
		SearchQueryType:         getEnv("SEARCH_QUERY_TYPE", ""),
		SplitSearchAssociations: getEnvAsBool("SEARCH_SPLIT_ASSOCIATIONS", false),
		ThumbnailSize:           getEnvAsInt("THUMBNAIL_SIZE", 100),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
