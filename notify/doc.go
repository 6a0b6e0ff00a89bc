// Package notify delivers one-time-code messages. SMTP speaks to a mail
// relay; Log writes to a structured logger for development setups.
package notify
