package config

// EnvPrefix is passed to envconfig; individual fields carry fully
// qualified names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "CAMPUSTIX_DB_DSN"
	EnvDBHost = "CAMPUSTIX_DB_HOST"
	EnvDBUser = "CAMPUSTIX_DB_USER"
	EnvDBName = "CAMPUSTIX_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
