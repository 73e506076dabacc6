package main_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBooksGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "BooksGateway Suite")
}
