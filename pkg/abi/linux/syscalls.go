package linux

// System call numbers on amd64.
const (
	SYS_GETPID     = 39
	SYS_EXECVE     = 59
	SYS_EXIT       = 60
	SYS_KILL       = 62
	SYS_GETTID     = 186
	SYS_TKILL      = 200
	SYS_EXIT_GROUP = 231
	SYS_EXECVEAT   = 322
)
