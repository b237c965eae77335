// Package application orquestra a reconciliação: busca, merge, desativação e notificação.
package application
