package app

import (
	"log/slog"
	"os"

	"github.com/example/ec-checkout/configs"
	"github.com/example/ec-checkout/internal/email"
	"github.com/example/ec-checkout/internal/logging"
	"github.com/example/ec-checkout/internal/payment"
	"github.com/example/ec-checkout/internal/payment/iyzico"
	"github.com/example/ec-checkout/internal/payment/simulated"
	"github.com/example/ec-checkout/internal/pricing"
	"github.com/shopspring/decimal"
)

// Gateway builds the configured payment provider.
func Gateway(cfg configs.Config) payment.Gateway {
	p := cfg.Payment
	if p.Provider == iyzico.Name {
		return iyzico.NewClient(p.Iyzico.BaseURL, p.Iyzico.APIKey, p.Iyzico.SecretKey, p.Iyzico.Timeout).
			WithIdentityNumber(p.Iyzico.DefaultIdentityNumber)
	}
	return simulated.New(p.SimulatedSecret, p.SimulatedLatency)
}

func PaymentConfig(cfg configs.Config) payment.Config {
	return payment.Config{
		Currency:           cfg.Payment.Currency,
		CallbackURL:        cfg.Payment.CallbackURL,
		ThreeDSCallbackURL: cfg.Payment.ThreeDSCallbackURL,
		SuccessURL:         cfg.Payment.SuccessURL,
		FailureURL:         cfg.Payment.FailureURL,
	}
}

// Mailer builds the email service over the configured provider. The log
// sender is used when none is set.
func Mailer(cfg configs.Config) *email.Service {
	e := cfg.Email
	var sender email.Sender
	switch e.Provider {
	case "smtp":
		sender = email.NewSMTPSender(e.SMTP.Host, e.SMTP.Port, e.SMTP.Username, e.SMTP.Password, e.From)
	case "sendgrid":
		sender = email.NewSendGridSender(e.SendGridAPIKey, e.FromName, e.From)
	case "postmark":
		sender = email.NewPostmarkSender(e.PostmarkToken, e.From)
	default:
		sender = email.LogSender{}
	}
	return email.NewService(sender, e.FromName)
}

func taxRate(cfg configs.Config) decimal.Decimal {
	if cfg.Pricing.TaxRate <= 0 {
		return pricing.DefaultTaxRate
	}
	return decimal.NewFromFloat(cfg.Pricing.TaxRate)
}

func thresholdShipping(cfg configs.Config) pricing.ThresholdShipping {
	policy := pricing.DefaultThresholdShipping()
	if cfg.Pricing.ShippingFee > 0 {
		policy.Fee = decimal.NewFromFloat(cfg.Pricing.ShippingFee)
	}
	if cfg.Pricing.FreeShippingAbove > 0 {
		policy.Threshold = decimal.NewFromFloat(cfg.Pricing.FreeShippingAbove)
	}
	return policy
}

// ServerCalculator prices orders. Shipping is flat unless the threshold
// policy is configured.
func ServerCalculator(cfg configs.Config) *pricing.Calculator {
	if cfg.Pricing.ServerShipping == "threshold" {
		return pricing.NewCalculator(taxRate(cfg), thresholdShipping(cfg))
	}
	flat := pricing.DefaultFlatShipping()
	if cfg.Pricing.ShippingFee > 0 {
		flat.Fee = decimal.NewFromFloat(cfg.Pricing.ShippingFee)
	}
	return pricing.NewCalculator(taxRate(cfg), flat)
}

// EstimateCalculator prices the checkout preview, which always uses the
// free-shipping threshold.
func EstimateCalculator(cfg configs.Config) *pricing.Calculator {
	return pricing.NewCalculator(taxRate(cfg), thresholdShipping(cfg))
}

// LoadConfig reads configs from CONFIG_DIR (default "configs") for the
// environment named by APP_ENV.
func LoadConfig() (configs.Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	if dir == "" {
		dir = "configs"
	}
	return configs.Load(dir, os.Getenv("APP_ENV"))
}

// InitLogging installs the process logger for one binary.
func InitLogging(cfg configs.Config, service string) *slog.Logger {
	return logging.Init(logging.Options{
		Service:  service,
		Level:    cfg.App.LogLevel,
		FilePath: cfg.App.LogFile,
	})
}
