// Package email sends transactional email for the notification email channel.
//
// NewPostmarkSender talks to Postmark via github.com/mrz1836/postmark;
// NewLogSender is a stand-in that only logs, used when no credentials are
// configured.
package email
