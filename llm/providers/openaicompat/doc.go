// Package openaicompat 实现 OpenAI Chat Completions 兼容协议的 Provider。
//
// OpenAI、DeepSeek、Qwen、Ollama、vLLM 等服务都暴露相同的 /v1/chat/completions 接口，
// 只需通过 Config 指定名称、BaseURL、默认模型与是否支持原生工具调用：
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com",
//	    DefaultModel: "deepseek-chat",
//	}, logger)
package openaicompat
