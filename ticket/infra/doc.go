// Package infra implementa o broker de tickets em memória.
package infra
