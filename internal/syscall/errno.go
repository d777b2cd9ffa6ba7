package syscall

// Errno values are the negative Linux-style error codes spec.md §4.6 names
// explicitly. Handlers return these (as int64) rather than a Go error, since
// the value itself crosses the trap boundary into the user's a0 register.
const (
	EPERM  = -1
	ENOENT = -2
	EIO    = -5
	ENOMEM = -12
	EFAULT = -14
	ENODEV = -19
	EINVAL = -22
	ENOSYS = -38
)
