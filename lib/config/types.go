package config

type Mode string

const (
	// Full reloads the whole target from the batch.
	Full Mode = "full"
	// Incremental upserts the batch on the table keys.
	Incremental Mode = "incremental"
)

func (m Mode) IsValid() bool {
	return m == Full || m == Incremental
}
