package tokenizer

import (
	"strings"
	"sync"
)

// Tokenizer 是统一的 token 计数接口
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// Name 返回分词器名称
	Name() string
}

// ForModel 为模型返回分词器。OpenAI 系列模型优先使用 tiktoken，
// 编码数据不可用时回退到估算器；其它模型直接使用估算器。
func ForModel(model string) Tokenizer {
	if _, ok := lookupEncoding(model); !ok {
		return NewEstimatorTokenizer()
	}
	return &fallbackTokenizer{
		primary:  NewTiktokenTokenizer(model),
		fallback: NewEstimatorTokenizer(),
	}
}

type fallbackTokenizer struct {
	primary  Tokenizer
	fallback Tokenizer

	mu     sync.Mutex
	failed bool
}

func (f *fallbackTokenizer) CountTokens(text string) (int, error) {
	f.mu.Lock()
	failed := f.failed
	f.mu.Unlock()
	if !failed {
		n, err := f.primary.CountTokens(text)
		if err == nil {
			return n, nil
		}
		f.mu.Lock()
		f.failed = true
		f.mu.Unlock()
	}
	return f.fallback.CountTokens(text)
}

func (f *fallbackTokenizer) Name() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return f.fallback.Name()
	}
	return f.primary.Name()
}

// TrimToBudget 从尾部开始保留文本，直到累计 token 数超过 budget。
// 返回被保留部分在原切片中的起始下标；budget <= 0 表示不限制。
// 最新的一条总会保留，即使它单独就超过预算。
func TrimToBudget(t Tokenizer, texts []string, budget int) int {
	if budget <= 0 || t == nil || len(texts) == 0 {
		return 0
	}
	total := 0
	for i := len(texts) - 1; i >= 0; i-- {
		n, err := t.CountTokens(texts[i])
		if err != nil {
			n = len(strings.Fields(texts[i]))
		}
		total += n
		if total > budget && i < len(texts)-1 {
			return i + 1
		}
	}
	return 0
}
