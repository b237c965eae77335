// Package domain contém o merge de registros externos e os contratos do reconciliador
// (fonte externa, store transacional) sem dependência de HTTP ou SQL.
package domain
