package linux

// Limits on the strings copied in by execve(2).
const (
	// MAX_ARG_STRLEN is the longest single argument or environment string,
	// including the terminating NUL.
	MAX_ARG_STRLEN = 32 * 4096

	// PATH_MAX is the longest pathname, including the terminating NUL.
	PATH_MAX = 4096

	// TASK_COMM_LEN is the size of the thread name buffer, including the
	// terminating NUL.
	TASK_COMM_LEN = 16
)

// Flags for execveat(2).
const (
	AT_FDCWD            = -100
	AT_SYMLINK_NOFOLLOW = 0x100
	AT_EMPTY_PATH       = 0x1000
)

// File mode bits.
const (
	S_IFMT   = 0o170000
	S_IFLNK  = 0o120000
	S_IFREG  = 0o100000
	S_IFDIR  = 0o040000
	S_ISUID  = 0o4000
	S_ISGID  = 0o2000
	S_IXUSR  = 0o100
	S_IXGRP  = 0o010
	S_IXOTH  = 0o001
	ModeMask = 0o7777
)
