package docmap

const (
	DefaultSearchLimit = 100
	// DefaultField is searched by bare values in ValuesDB queries.
	DefaultField = "0"
)
