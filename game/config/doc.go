// Package config provides process configuration for the session relay.
//
// The config package handles:
//   - Built-in defaults for listening, logging and transport limits
//   - Loading a .env file into the environment (github.com/joho/godotenv)
//   - Overriding defaults from RELAY_* and NGROK_* environment variables
//   - Validation before the server starts
//
// Environment Variables:
//
//	RELAY_HOST, RELAY_PORT             listen address
//	RELAY_STATIC_DIR                   directory served at /
//	RELAY_LOG_LEVEL, RELAY_LOG_FILE    DEBUG|INFO|WARNING|ERROR, optional rotating file
//	RELAY_SEND_BUFFER                  queued frames per connection
//	RELAY_MAX_MESSAGE_BYTES            largest accepted inbound frame
//	RELAY_WRITE_WAIT, RELAY_PONG_WAIT  transport deadlines (Go durations)
//	RELAY_MESSAGES_PER_SECOND          inbound rate per connection, 0 = unlimited
//	RELAY_MESSAGE_BURST                limiter burst
//	NGROK_ENABLED, NGROK_AUTHTOKEN, NGROK_DOMAIN
//
// Command-line flags take precedence over everything loaded here.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//	addr := cfg.Addr()
package config
