package repository

// Every value this client persists lives under one namespace pair.
const (
	PrimaryNamespace   = "watchtower"
	SecondaryNamespace = "version"

	UserKey      = "userkey"
	TowerListKey = "towerlistkey"
)
