package utils

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
)

var ErrorRecordNotFound = errors.New("record not found")

// ErrorLockNotObtained is returned when another request currently holds the resource lock.
var ErrorLockNotObtained = errors.New("resource is locked by another request")

// IsDuplicateKeyErr reports a MySQL unique constraint violation (1062).
func IsDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
