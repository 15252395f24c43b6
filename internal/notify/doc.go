// Package notify posts batch run summaries to a Discord webhook.
package notify
