// Package domain define o ticket de uso único, seus estados e o contrato do broker.
package domain
