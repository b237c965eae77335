// Package application contém os casos de uso do rate limit e do limite de concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Service.Decide(key) devolve a Decision do limiter com retry-after mínimo aplicado.
package application
