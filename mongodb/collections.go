package mongodb

const (
	SessionsCollection      = "user_sessions"  // One record per session key
	LoginAttemptsCollection = "login_attempts" // Reported auth attempts (brute-force signal)
	NotificationsCollection = "notifications"  // Operator notifications (security alerts)
	UsersCollection         = "users"          // Principal directory (read-only here)
)
