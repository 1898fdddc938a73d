package smartnotify

import "github.com/dmitrymomot/smartnotify/pkg/notifications"

// SelectChannels picks delivery channels. in_app is always included; email
// is added for high and critical and for users with a read rate below 0.4;
// sms only for critical when smsEnabled.
func SelectChannels(profile *UserProfile, level notifications.Priority, smsEnabled bool) []notifications.Channel {
	chs := []notifications.Channel{notifications.ChannelInApp}
	if level == notifications.PriorityHigh || level == notifications.PriorityCritical {
		chs = append(chs, notifications.ChannelEmail)
	}
	if level == notifications.PriorityCritical && smsEnabled {
		chs = append(chs, notifications.ChannelSMS)
	}
	if profile != nil && profile.ReadRate < 0.4 {
		chs = append(chs, notifications.ChannelEmail)
	}
	return notifications.NormalizeChannels(chs)
}
