package registry

import "errors"

var (
	// ErrDuplicateID — один ID встречается в документе несколько раз.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrMissingLock — у зависимости нет записи в lock.
	ErrMissingLock = errors.New("dependency has no lock entry")

	// ErrBadVersion — версия в lock не является семантической.
	ErrBadVersion = errors.New("invalid lock version")

	// ErrUnknownDependency — зависимость отсутствует в реестре.
	ErrUnknownDependency = errors.New("unknown dependency")
)
