package config

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"
	"github.com/robfig/cron/v3"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/constants"
	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

type Config struct {
	AppName string
	AppPort string
	AppUrl  string
	Env     string

	// Database
	DBUrl string

	// Auth (admin endpoints only)
	RSAPublicKey *rsa.PublicKey

	// Scheduled cleanup of resolved requests
	CleanupCron string

	// LaunchDarkly flags
	LDFlag_CORSHighSecurity        bool
	LDFlag_ScheduledCleanupEnabled bool
}

const LDConnectionTimeout = 5 * time.Second

// build-time overrides
var (
	AppName             = "verify-guard"
	LDServerContextKey  = "verify-guard"
	LDServerContextKind = "service"
)

func LoadConfig() *Config {
	if AppName == "" {
		utils.Logger.Fatal("AppName ldflag missing")
	}

	utils.Logger.Info("Loading config for app: ", AppName)

	env := os.Getenv("ENV")
	if env == "" {
		utils.Logger.Fatal("ENV env var is missing")
	}
	appUrl := os.Getenv("APP_URL_FROM_ANYWHERE")
	if appUrl == "" {
		utils.Logger.Fatal("APP_URL_FROM_ANYWHERE env var is missing")
	}
	appPort := os.Getenv("APP_PORT")
	if appPort == "" {
		utils.Logger.Fatal("APP_PORT env var is missing")
	}
	dbURL := os.Getenv("DB_URL")
	if dbURL == "" {
		utils.Logger.Fatal("DB_URL env var is missing")
	}

	pubB64 := os.Getenv("RSA_PUBLIC_KEY_BASE64")
	if pubB64 == "" {
		utils.Logger.Fatal("RSA_PUBLIC_KEY_BASE64 env var is missing")
	}
	pubKey, err := ParseRSAPublicKey(pubB64)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to parse RSA public key")
	}

	cleanupCron, err := CleanupSchedule(os.Getenv("CLEANUP_CRON"))
	if err != nil {
		utils.Logger.WithError(err).Fatal("CLEANUP_CRON is not a valid cron expression")
	}

	// Safe defaults when no LaunchDarkly project is attached.
	corsHighSecurityFlag := env != "dev"
	scheduledCleanupFlag := true

	if ldSDKKey := os.Getenv("LD_SDK_KEY"); ldSDKKey != "" {
		ldClient, err := ld.MakeClient(ldSDKKey, LDConnectionTimeout)
		if err != nil {
			utils.Logger.WithError(err).Fatal("Failed to create LaunchDarkly client")
		}
		if !ldClient.Initialized() {
			ldClient.Close()
			utils.Logger.Fatal("LaunchDarkly client failed to initialize")
		}
		defer ldClient.Close()

		ctx := ldcontext.NewWithKind(ldcontext.Kind(LDServerContextKind), LDServerContextKey)

		corsHighSecurityFlag, err = ldClient.BoolVariation("cors_high_security", ctx, corsHighSecurityFlag)
		if err != nil {
			utils.Logger.WithError(err).Fatal("Error retrieving cors_high_security flag")
		}
		utils.Logger.Debugf("cors_high_security flag: %t", corsHighSecurityFlag)

		scheduledCleanupFlag, err = ldClient.BoolVariation("scheduled_cleanup_enabled", ctx, scheduledCleanupFlag)
		if err != nil {
			utils.Logger.WithError(err).Fatal("Error retrieving scheduled_cleanup_enabled flag")
		}
		utils.Logger.Debugf("scheduled_cleanup_enabled flag: %t", scheduledCleanupFlag)
	} else {
		utils.Logger.Warn("LD_SDK_KEY not set, using default feature flags")
	}

	return &Config{
		AppName:                        AppName,
		AppPort:                        appPort,
		AppUrl:                         appUrl,
		Env:                            env,
		DBUrl:                          dbURL,
		RSAPublicKey:                   pubKey,
		CleanupCron:                    cleanupCron,
		LDFlag_CORSHighSecurity:        corsHighSecurityFlag,
		LDFlag_ScheduledCleanupEnabled: scheduledCleanupFlag,
	}
}

// ParseRSAPublicKey decodes a base64-wrapped PEM public key.
func ParseRSAPublicKey(b64 string) (*rsa.PublicKey, error) {
	pubPEM, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if block, _ := pem.Decode(pubPEM); block == nil {
		return nil, errors.New("failed to decode PEM block for public key")
	}
	return jwt.ParseRSAPublicKeyFromPEM(pubPEM)
}

// CleanupSchedule returns spec, or the default schedule when spec is
// empty, after checking it parses as a standard 5-field cron expression.
func CleanupSchedule(spec string) (string, error) {
	if spec == "" {
		spec = constants.DefaultCleanupCron
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return "", err
	}
	return spec, nil
}

func (c *Config) Close() {}
