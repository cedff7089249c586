// Package config loads the dialout configuration from command line flags
// with environment variable overrides, in that order of precedence.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// Environment selects timing profiles for registration retries.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Config holds the SIP user agent configuration
type Config struct {
	// SIP account settings
	RegistrarHost string // Registrar / outbound proxy host
	RegistrarPort int
	Username      string
	Password      string
	DisplayName   string // Caller display name for the From header

	// Local SIP settings
	Transport     string // "udp" or "tcp"
	BindAddr      string // Address to bind for listening
	BindPort      int
	AdvertiseAddr string // Address placed in Contact/Via; defaults to BindAddr

	// Registration policy
	Environment      string // production or development
	RegisterExpiry   int    // Expires value in seconds
	MaxRegisterTries int    // Retry ceiling before the registration future is rejected

	// Advertised media port for the SDP offer. The engine never opens it;
	// media is handled outside this process.
	MediaPort int

	// Observability
	APIAddr  string
	LogLevel string
}

// Load loads configuration from command line flags and environment variables
func Load() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.RegistrarHost, "registrar", "localhost", "SIP registrar host")
	flag.IntVar(&cfg.RegistrarPort, "registrar-port", 5060, "SIP registrar port")
	flag.StringVar(&cfg.Username, "user", "dialout", "SIP username")
	flag.StringVar(&cfg.Password, "password", "", "SIP password for digest authentication")
	flag.StringVar(&cfg.DisplayName, "display-name", "", "Caller display name")
	flag.StringVar(&cfg.Transport, "transport", "udp", "SIP transport (udp, tcp)")
	flag.StringVar(&cfg.BindAddr, "bind", "0.0.0.0", "SIP bind address")
	flag.IntVar(&cfg.BindPort, "port", 5060, "SIP listening port")
	flag.StringVar(&cfg.AdvertiseAddr, "advertise", "", "Address to advertise in SIP headers (bind address if not set)")
	flag.StringVar(&cfg.Environment, "env", EnvDevelopment, "Environment (production, development)")
	flag.IntVar(&cfg.RegisterExpiry, "expiry", 3600, "REGISTER Expires value in seconds")
	flag.IntVar(&cfg.MaxRegisterTries, "register-attempts", 3, "Maximum registration attempts")
	flag.IntVar(&cfg.MediaPort, "media-port", 40000, "RTP port advertised in the SDP offer")
	flag.StringVar(&cfg.APIAddr, "api", "0.0.0.0:8080", "HTTP API listen address")
	flag.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")

	flag.Parse()

	// Override with environment variables if set
	if v := os.Getenv("SIP_REGISTRAR"); v != "" {
		cfg.RegistrarHost = v
	}
	if v := os.Getenv("SIP_REGISTRAR_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.RegistrarPort = p
		}
	}
	if v := os.Getenv("SIP_USER"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("SIP_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("SIP_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("BIND"); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.BindPort = p
		}
	}
	if v := os.Getenv("ADVERTISE"); v != "" {
		cfg.AdvertiseAddr = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("LOGLEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.APIAddr = v
	}

	cfg.Normalize()
	return cfg
}

// Normalize applies fallbacks for invalid or missing values.
func (c *Config) Normalize() {
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))
	if c.Transport != "udp" && c.Transport != "tcp" {
		c.Transport = "udp"
	}
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.Environment != EnvProduction && c.Environment != EnvDevelopment {
		c.Environment = EnvDevelopment
	}
	if c.AdvertiseAddr == "" || !isValidAddress(c.AdvertiseAddr) {
		c.AdvertiseAddr = c.BindAddr
	}
	if c.RegisterExpiry <= 0 {
		c.RegisterExpiry = 3600
	}
	if c.MaxRegisterTries <= 0 {
		c.MaxRegisterTries = 3
	}
	if c.MediaPort <= 0 || c.MediaPort > 65535 {
		c.MediaPort = 40000
	}
}

// Validate reports configuration errors that cannot be papered over.
func (c *Config) Validate() error {
	if c.RegistrarHost == "" {
		return fmt.Errorf("registrar host is required")
	}
	if c.Username == "" {
		return fmt.Errorf("sip username is required")
	}
	if c.BindPort <= 0 || c.BindPort > 65535 {
		return fmt.Errorf("invalid sip port: %d", c.BindPort)
	}
	if c.RegistrarPort <= 0 || c.RegistrarPort > 65535 {
		return fmt.Errorf("invalid registrar port: %d", c.RegistrarPort)
	}
	return nil
}

// ListenAddr returns the host:port the SIP stack binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BindAddr, c.BindPort)
}

// RegistrarAddr returns the registrar host:port.
func (c *Config) RegistrarAddr() string {
	return fmt.Sprintf("%s:%d", c.RegistrarHost, c.RegistrarPort)
}

// isValidAddress checks that the string parses as an IP or resolvable hostname literal.
func isValidAddress(addr string) bool {
	if net.ParseIP(addr) != nil {
		return true
	}
	// Hostnames are accepted as-is; resolution happens at send time.
	return addr != "" && !strings.ContainsAny(addr, " /")
}
