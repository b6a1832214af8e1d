package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr                string
	SessionCookie       string
	SessionTTLHours     int
	SessionStorePath    string
	BasePath            string
	ChallengeTTLMinutes int
	TOTPIssuer          string
	GoogleClientID      string
	StreamHistory       int
	SnapshotLimit       int
}
