package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeGenerator 產生房間代碼，是否與現存房間衝突由 Registry 檢查
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator 從 crypto/rand 均勻抽取大寫英數字
type RandomCodeGenerator struct {
	length int
}

func NewRandomCodeGenerator(length int) *RandomCodeGenerator {
	return &RandomCodeGenerator{length: length}
}

func (g *RandomCodeGenerator) Generate() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to read random source: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode 房間代碼不分大小寫
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(codeAlphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
