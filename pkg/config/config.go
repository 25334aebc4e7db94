package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper desde env y opcionalmente archivo).
type Config struct {
	App       AppConfig
	DB        DBConfig
	JWT       JWTConfig
	HTTP      HTTPConfig
	SUNAT     SUNATConfig
	Storage   StorageConfig
	Queue     QueueConfig
	Reconcile ReconcileConfig
	Webhook   WebhookConfig
	Tax       TaxConfig
}

// Entornos SUNAT soportados.
const (
	SunatEnvDev  = "dev"  // no contacta a SUNAT; respuestas simuladas
	SunatEnvBeta = "beta" // servidores de homologación
	SunatEnvProd = "prod"
)

// SUNATConfig credenciales SOL, certificado y endpoints de SUNAT.
type SUNATConfig struct {
	Environment  string
	SolUser      string // usuario secundario SOL (sin RUC)
	SolPassword  string
	CertPath     string // .p12/.pfx o .pem (vacío = no firmar, simulado)
	CertKeyPath  string // llave privada .pem si CertPath es solo el certificado
	CertPassword string
	Timeout      time.Duration

	// URLs opcionales; vacías = las oficiales según Environment.
	BillServiceURL      string
	RetentionServiceURL string
	GREAPIURL           string
	GRETokenURL         string
	GREClientID         string
	GREClientSecret     string
}

// IsDev indica si el entorno no debe contactar a SUNAT.
func (c SUNATConfig) IsDev() bool {
	return c.Environment == "" || c.Environment == SunatEnvDev
}

// StorageConfig almacenamiento de artefactos (XML, CDR, PDF).
// Si Bucket está vacío se usa disco local en LocalDir.
type StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	LocalDir  string
}

// QueueConfig cola de envíos asíncronos (estado EN_COLA).
type QueueConfig struct {
	PollInterval    time.Duration
	Concurrency     int
	MaxSendAttempts int
}

// ReconcileConfig consulta periódica de tickets en PROCESANDO.
type ReconcileConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// WebhookConfig valores por defecto del despachador de webhooks.
type WebhookConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	Concurrency       int
	DefaultMaxRetries int
	MaxRetriesCeiling int
	DefaultRetryDelay time.Duration
	DefaultTimeout    time.Duration
	Lease             time.Duration
}

// TaxConfig tasas y umbrales tributarios vigentes.
type TaxConfig struct {
	IGVRate          string // porcentaje, ej. "18"
	ICBPERFactor     string // soles por bolsa, ej. "0.50"
	BankarizationPEN string
	BankarizationUSD string
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío, se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido, si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN devuelve el connection string para PostgreSQL con URL encoding para caracteres especiales.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de JWT.
type JWTConfig struct {
	Secret     string
	Expiration int // minutos
	Issuer     string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load lee la configuración desde variables de entorno (y opcionalmente desde archivo).
// Las env vars tienen prioridad. Nombres esperados: APP_ENV, DB_HOST, SUNAT_ENV, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "facturacion-sunat"),
			LogLevel: getString(v, "LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        getInt(v, "DB_PORT", 5432),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "facturacion_sunat"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret:     getString(v, "JWT_SECRET", ""),
			Expiration: getInt(v, "JWT_EXPIRATION_MINUTES", 60),
			Issuer:     getString(v, "JWT_ISSUER", "facturacion-sunat"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		SUNAT: SUNATConfig{
			Environment:         getString(v, "SUNAT_ENV", SunatEnvDev),
			SolUser:             getString(v, "SUNAT_SOL_USER", ""),
			SolPassword:         getString(v, "SUNAT_SOL_PASSWORD", ""),
			CertPath:            getString(v, "SUNAT_CERT_PATH", ""),
			CertKeyPath:         getString(v, "SUNAT_CERT_KEY_PATH", ""),
			CertPassword:        getString(v, "SUNAT_CERT_PASSWORD", ""),
			Timeout:             getSeconds(v, "SUNAT_TIMEOUT_SECONDS", 30),
			BillServiceURL:      getString(v, "SUNAT_BILL_SERVICE_URL", ""),
			RetentionServiceURL: getString(v, "SUNAT_RETENTION_SERVICE_URL", ""),
			GREAPIURL:           getString(v, "SUNAT_GRE_API_URL", ""),
			GRETokenURL:         getString(v, "SUNAT_GRE_TOKEN_URL", ""),
			GREClientID:         getString(v, "SUNAT_GRE_CLIENT_ID", ""),
			GREClientSecret:     getString(v, "SUNAT_GRE_CLIENT_SECRET", ""),
		},
		Storage: StorageConfig{
			Bucket:    getString(v, "S3_BUCKET", ""),
			Region:    getString(v, "S3_REGION", "us-east-1"),
			Endpoint:  getString(v, "S3_ENDPOINT", ""),
			AccessKey: getString(v, "S3_ACCESS_KEY", ""),
			SecretKey: getString(v, "S3_SECRET_KEY", ""),
			LocalDir:  getString(v, "STORAGE_LOCAL_DIR", "./storage"),
		},
		Queue: QueueConfig{
			PollInterval:    getSeconds(v, "QUEUE_POLL_INTERVAL_SECONDS", 5),
			Concurrency:     getInt(v, "QUEUE_CONCURRENCY", 4),
			MaxSendAttempts: getInt(v, "QUEUE_MAX_SEND_ATTEMPTS", 5),
		},
		Reconcile: ReconcileConfig{
			PollInterval: getSeconds(v, "RECONCILE_POLL_INTERVAL_SECONDS", 60),
			BatchSize:    getInt(v, "RECONCILE_BATCH_SIZE", 20),
		},
		Webhook: WebhookConfig{
			PollInterval:      getSeconds(v, "WEBHOOK_POLL_INTERVAL_SECONDS", 10),
			BatchSize:         getInt(v, "WEBHOOK_BATCH_SIZE", 50),
			Concurrency:       getInt(v, "WEBHOOK_CONCURRENCY", 8),
			DefaultMaxRetries: getInt(v, "WEBHOOK_DEFAULT_MAX_RETRIES", 5),
			MaxRetriesCeiling: getInt(v, "WEBHOOK_MAX_RETRIES_CEILING", 10),
			DefaultRetryDelay: getSeconds(v, "WEBHOOK_DEFAULT_RETRY_DELAY_SECONDS", 60),
			DefaultTimeout:    getSeconds(v, "WEBHOOK_DEFAULT_TIMEOUT_SECONDS", 10),
			Lease:             getSeconds(v, "WEBHOOK_LEASE_SECONDS", 120),
		},
		Tax: TaxConfig{
			IGVRate:          getString(v, "TAX_IGV_RATE", "18"),
			ICBPERFactor:     getString(v, "TAX_ICBPER_FACTOR", "0.50"),
			BankarizationPEN: getString(v, "TAX_BANKARIZATION_PEN", "2000"),
			BankarizationUSD: getString(v, "TAX_BANKARIZATION_USD", "500"),
		},
	}

	switch cfg.SUNAT.Environment {
	case SunatEnvDev, SunatEnvBeta, SunatEnvProd:
	default:
		return nil, fmt.Errorf("SUNAT_ENV inválido %q (usar dev, beta o prod)", cfg.SUNAT.Environment)
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case int:
			return v.GetInt(key)
		case string:
			n, err := strconv.Atoi(v.GetString(key))
			if err != nil {
				return def
			}
			return n
		default:
			return v.GetInt(key)
		}
	}
	return def
}

func getSeconds(v *viper.Viper, key string, def int) time.Duration {
	return time.Duration(getInt(v, key, def)) * time.Second
}
