package timex

// SQLiteText is the layout for timestamps persisted in SQLite TEXT columns.
// The fractional second is fixed-width so lexicographic comparison of stored
// values matches chronological order. time.RFC3339Nano trims trailing zeros,
// which misorders same-second timestamps under TEXT comparison ("…05.15Z"
// sorts before "…05.1Z").
const SQLiteText = "2006-01-02T15:04:05.000000000Z07:00"
