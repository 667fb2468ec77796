package core

import (
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
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | mongodb | inmem
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MongoURI      string
	}

	PaymentConfig struct {
		Provider      string // stripe | dummy
		SecretKey     string
		WebhookSecret string
		Currency      string
		SuccessURL    string
		CancelURL     string
		Timeout       time.Duration
	}

	NotificationConfig struct {
		Backend     string // email | rabbitmq
		RabbitMQURL string
		Queue       string
	}

	Config struct {
		AppName          string
		Env              string
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address

		Server       ServerConfig
		Database     DatabaseConfig
		Payment      PaymentConfig
		Notification NotificationConfig
	}
)

// Address returns the database "host:port".
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("appName", "Masomo Academy")
	conf.SetDefault("build", "develop")
	conf.SetDefault("debug", true)
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("frontendBaseURL", "http://localhost:8080")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("defaultFromName", "Masomo Academy")

	conf.SetDefault("serverHost", "0.0.0.0:8000")
	conf.SetDefault("debugHost", "0.0.0.0:4000")
	conf.SetDefault("readTimeout", 5*time.Second)
	conf.SetDefault("writeTimeout", 5*time.Second)
	conf.SetDefault("shutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("disableReqLogs", false)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", "5432")
	conf.SetDefault("dbName", "masomo_academy")
	conf.SetDefault("dbUser", "masomo")
	conf.SetDefault("dbPassword", "masomo")
	conf.SetDefault("dbAdminUser", "postgres")
	conf.SetDefault("dbAdminPassword", "postgres")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("mongoURI", "mongodb://localhost:27017")

	conf.SetDefault("paymentProvider", "dummy")
	conf.SetDefault("paymentCurrency", "usd")
	conf.SetDefault("paymentSuccessURL", "http://localhost:8080/checkout/success?session_id={CHECKOUT_SESSION_ID}")
	conf.SetDefault("paymentCancelURL", "http://localhost:8080/checkout/cancel")
	conf.SetDefault("paymentTimeout", 10*time.Second)

	conf.SetDefault("notificationBackend", "email")
	conf.SetDefault("notificationQueue", "enrollment_notifications")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:         conf.GetString("appName"),
		Env:             env,
		Build:           conf.GetString("build"),
		Debug:           conf.GetBool("debug"),
		TestMode:        conf.GetBool("testMode"),
		SecretKey:       conf.GetString("secretKey"),
		WorkDir:         workDir,
		FrontendBaseURL: conf.GetString("frontendBaseURL"),
		RollbarToken:    conf.GetString("rollbarToken"),
		SendgridAPIKey:  conf.GetString("sendgridApiKey"),
		DefaultFromEmail: mail.Address{
			Name:    conf.GetString("defaultFromName"),
			Address: conf.GetString("defaultFromEmail"),
		},
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			DebugHost:                 conf.GetString("debugHost"),
			ReadTimeout:               conf.GetDuration("readTimeout"),
			WriteTimeout:              conf.GetDuration("writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
			DisableReqLogs:            conf.GetBool("disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetString("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
			MongoURI:      conf.GetString("mongoURI"),
		},
		Payment: PaymentConfig{
			Provider:      conf.GetString("paymentProvider"),
			SecretKey:     conf.GetString("stripeSecretKey"),
			WebhookSecret: conf.GetString("stripeWebhookSecret"),
			Currency:      conf.GetString("paymentCurrency"),
			SuccessURL:    conf.GetString("paymentSuccessURL"),
			CancelURL:     conf.GetString("paymentCancelURL"),
			Timeout:       conf.GetDuration("paymentTimeout"),
		},
		Notification: NotificationConfig{
			Backend:     conf.GetString("notificationBackend"),
			RabbitMQURL: conf.GetString("rabbitmqURL"),
			Queue:       conf.GetString("notificationQueue"),
		},
	}
}
