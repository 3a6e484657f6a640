package config

import (
	"os"
	"strings"
	"time"
)

type Config struct {
	RunLocal bool
	Port     string

	ClientURL           string
	StripeKey           string
	StripeWebhookSecret string
	Currency            string
	ShippingCountries   []string

	PendingTable  string
	OrdersTable   string
	ProductsTable string
	VerifyQueue   string

	MongoURI      string
	MongoDBName   string
	RedisAddr     string
	RedisPassword string

	MetricsNamespace string

	ProviderTimeout time.Duration
	LeaseTTL        time.Duration
	PendingTTL      time.Duration
	ResultCacheTTL  time.Duration

	// LocalSQSBody is the message body the worker processes once when RunLocal is set.
	LocalSQSBody string
}

func Default() Config {
	return Config{
		Port:              "8080",
		ClientURL:         "http://localhost:3000",
		Currency:          "usd",
		ShippingCountries: []string{"PK", "IN", "BD"},
		PendingTable:      "pending_checkouts",
		OrdersTable:       "orders",
		ProductsTable:     "products",
		MongoDBName:       "storefront",
		MetricsNamespace:  "CheckoutReconciler",
		ProviderTimeout:   10 * time.Second,
		LeaseTTL:          2 * time.Minute,
		PendingTTL:        30 * 24 * time.Hour,
		ResultCacheTTL:    24 * time.Hour,
		LocalSQSBody:      `{"session_id":"cs_test_local"}`,
	}
}

// Load returns the defaults overridden by the process environment.
func Load() Config {
	return fromEnv(Default())
}

func fromEnv(c Config) Config {
	if v := os.Getenv("RUN_LOCAL"); v != "" {
		switch v {
		case "1", "true", "TRUE":
			c.RunLocal = true
		case "0", "false", "FALSE":
			c.RunLocal = false
		}
	}
	setString(&c.Port, "PORT")
	setString(&c.ClientURL, "CLIENT_URL")
	setString(&c.StripeKey, "STRIPE_KEY")
	setString(&c.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&c.Currency, "CHECKOUT_CURRENCY")
	if v := os.Getenv("SHIPPING_COUNTRIES"); v != "" {
		var countries []string
		for _, cc := range strings.Split(v, ",") {
			if cc = strings.ToUpper(strings.TrimSpace(cc)); cc != "" {
				countries = append(countries, cc)
			}
		}
		if len(countries) > 0 {
			c.ShippingCountries = countries
		}
	}
	setString(&c.PendingTable, "PENDING_TABLE")
	setString(&c.OrdersTable, "ORDERS_TABLE")
	setString(&c.ProductsTable, "PRODUCTS_TABLE")
	setString(&c.VerifyQueue, "VERIFY_QUEUE_URL")
	setString(&c.MongoURI, "MONGO_URI")
	setString(&c.MongoDBName, "MONGO_DB_NAME")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.MetricsNamespace, "METRICS_NAMESPACE")
	setDuration(&c.ProviderTimeout, "PROVIDER_TIMEOUT")
	setDuration(&c.LeaseTTL, "LEASE_TTL")
	setDuration(&c.PendingTTL, "PENDING_TTL")
	setDuration(&c.ResultCacheTTL, "RESULT_CACHE_TTL")
	setString(&c.LocalSQSBody, "LOCAL_SQS_BODY")
	return c
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}
