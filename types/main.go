package types

type (
	Void struct{}

	Callable func()
)

var (
	NULL Void
)
