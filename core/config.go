package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
		BodyLimit                 string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
	}

	PaymentConfig struct {
		Currency              string
		CheckoutExpiry        time.Duration
		StripeSecretKey       string
		StripeWebhookSecret   string
		RazorpayKeyID         string
		RazorpayKeySecret     string
		RazorpayWebhookSecret string
		RazorpayCurrency      string
	}

	StorageConfig struct {
		Backend        string // disk | gcs
		DiskRoot       string
		PublicBaseURL  string
		GCSBucket      string
		GCSCDNDomain   string
		GCSCredentials string
		MaxImageSize   int64
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	Config struct {
		Env              string
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail string
		SendgridAPIKey   string
		RollbarToken     string
		SeedAdminEmail   string
		SeedAdminName    string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Payment  PaymentConfig
		Storage  StorageConfig
		Redis    RedisConfig
	}
)

// NewConfig loads the app configuration from the environment.
// ENV selects the profile (DEV by default) and doubles as the env var prefix: DEV_DATABASE_HOST, PROD_SECRETKEY...
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	setDefaults(v, env)
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appname"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testmode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretkey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendbaseurl"), "/"),
		DefaultFromEmail: v.GetString("defaultfromemail"),
		SendgridAPIKey:   v.GetString("sendgridapikey"),
		RollbarToken:     v.GetString("rollbartoken"),
		SeedAdminEmail:   v.GetString("seedadminemail"),
		SeedAdminName:    v.GetString("seedadminname"),

		PasswordResetTimeoutDelta: v.GetDuration("passwordresettimeoutdelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debughost"),
			ShutdownTimeout:           v.GetDuration("server.shutdowntimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtexpirationdelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtrefreshexpirationdelta"),
			CORSOrigins:               v.GetStringSlice("server.corsorigins"),
			BodyLimit:                 v.GetString("server.bodylimit"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminuser"),
			AdminPassword: v.GetString("database.adminpassword"),
			DisableTLS:    v.GetBool("database.disabletls"),
			MaxOpenConns:  v.GetInt("database.maxopenconns"),
		},
		Payment: PaymentConfig{
			Currency:              strings.ToLower(v.GetString("payment.currency")),
			CheckoutExpiry:        v.GetDuration("payment.checkoutexpiry"),
			StripeSecretKey:       v.GetString("payment.stripesecretkey"),
			StripeWebhookSecret:   v.GetString("payment.stripewebhooksecret"),
			RazorpayKeyID:         v.GetString("payment.razorpaykeyid"),
			RazorpayKeySecret:     v.GetString("payment.razorpaykeysecret"),
			RazorpayWebhookSecret: v.GetString("payment.razorpaywebhooksecret"),
			RazorpayCurrency:      strings.ToUpper(v.GetString("payment.razorpaycurrency")),
		},
		Storage: StorageConfig{
			Backend:        v.GetString("storage.backend"),
			DiskRoot:       v.GetString("storage.diskroot"),
			PublicBaseURL:  strings.TrimRight(v.GetString("storage.publicbaseurl"), "/"),
			GCSBucket:      v.GetString("storage.gcsbucket"),
			GCSCDNDomain:   v.GetString("storage.gcscdndomain"),
			GCSCredentials: v.GetString("storage.gcscredentials"),
			MaxImageSize:   v.GetInt64("storage.maximagesize"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("build", "develop")
	v.SetDefault("appname", "SkillSharp")
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testmode", env == "TEST")
	v.SetDefault("secretkey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendbaseurl", "http://localhost:3000")
	v.SetDefault("defaultfromemail", "SkillSharp <noreply@localhost>")
	v.SetDefault("seedadminemail", "admin@example.com")
	v.SetDefault("seedadminname", "Admin")
	v.SetDefault("passwordresettimeoutdelta", 3*24*time.Hour)

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debughost", ":4000")
	v.SetDefault("server.shutdowntimeout", 5*time.Second)
	v.SetDefault("server.jwtexpirationdelta", 7*24*time.Hour)
	v.SetDefault("server.jwtrefreshexpirationdelta", 30*24*time.Hour)
	v.SetDefault("server.corsorigins", []string{"http://localhost:3000"})
	v.SetDefault("server.bodylimit", "8M")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "skillsharp")
	v.SetDefault("database.user", "skillsharp")
	v.SetDefault("database.password", "skillsharp")
	v.SetDefault("database.adminuser", "postgres")
	v.SetDefault("database.adminpassword", "postgres")
	v.SetDefault("database.disabletls", env == "DEV" || env == "TEST")
	v.SetDefault("database.maxopenconns", 25)

	v.SetDefault("payment.currency", "usd")
	v.SetDefault("payment.checkoutexpiry", 30*time.Minute)
	v.SetDefault("payment.razorpaycurrency", "INR")

	v.SetDefault("storage.backend", "disk")
	v.SetDefault("storage.diskroot", "media")
	v.SetDefault("storage.publicbaseurl", "http://localhost:8000/media")
	v.SetDefault("storage.maximagesize", 5<<20)

	v.SetDefault("redis.channel", "skillsharp:chat")
}

// FromAddress parses DefaultFromEmail.
func (c *Config) FromAddress() mail.Address {
	if addr, err := mail.ParseAddress(c.DefaultFromEmail); err == nil {
		return *addr
	}
	return mail.Address{Name: c.AppName, Address: c.DefaultFromEmail}
}

func (c *Config) FrontendURL(path string, args ...interface{}) string {
	return c.FrontendBaseURL + fmt.Sprintf(path, args...)
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, db.Port)
}
