package utils

import (
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
)

// ValidateResourceId checks that id exists for model T inside the running transaction.
// The error names the model and wraps ErrorRecordNotFound.
func ValidateResourceId[T any](tx *gorm.DB, id interface{}) error {
	count, err := ResourceCountWhere[T](tx, "id = ?", id)
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%s %v: %w", GetTypeName[T](), id, ErrorRecordNotFound)
	}
	return nil
}

type ValidationRule[ID comparable] struct {
	Model   interface{}
	Ids     []ID
	Message string
	Filter  Filter
}

type Filter struct {
	Cond   string
	Values []interface{}
}

// MassValidateResourceIds checks every rule's ids in one query per rule.
func MassValidateResourceIds[ID comparable](tx *gorm.DB, rules []ValidationRule[ID]) error {
	for _, rule := range rules {
		if len(rule.Ids) <= 0 {
			continue
		}
		unqIds := UniqueSlice(rule.Ids)

		var count int64
		q := tx.Model(rule.Model).Where("id IN ?", unqIds)
		if rule.Filter.Cond != "" {
			q = q.Where(rule.Filter.Cond, rule.Filter.Values...)
		}
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		if count != int64(len(unqIds)) {
			return fmt.Errorf("%s: %w", rule.Message, ErrorRecordNotFound)
		}
	}
	return nil
}

// ValidateUnique fails when another row of T already has column = value.
// exceptId is ignored when zero.
func ValidateUnique[T any](tx *gorm.DB, column string, value interface{}, exceptId interface{}) error {
	var count int64
	var err error
	if exceptId == nil || reflect.ValueOf(exceptId).IsZero() {
		count, err = ResourceCountWhere[T](tx, column+" = ?", value)
	} else {
		count, err = ResourceCountWhere[T](tx, column+" = ? AND NOT id = ?", value, exceptId)
	}
	if err != nil {
		return err
	}
	if count > 0 {
		return errors.New("duplicate " + column)
	}
	return nil
}

func ResourceCountWhere[T any](tx *gorm.DB, condition string, value ...interface{}) (int64, error) {
	var model T
	var count int64
	if err := tx.Model(&model).Where(condition, value...).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func GetTypeName[T any]() string {
	var v T
	return reflect.TypeOf(v).Name()
}
