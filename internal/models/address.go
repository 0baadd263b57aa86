package models

import "errors"

// ErrAddressNotFound - сервис адресов не знает такого почтового индекса
var ErrAddressNotFound = errors.New("address not found")

// Address - район и город, найденные по почтовому индексу (CEP)
type Address struct {
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	ZipCode      string `json:"zipCode"`
}
