// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package tokenizer 提供 token 计数能力，用于把会话历史裁剪到 token 预算内。

TiktokenTokenizer 使用 tiktoken 编码（首次使用时加载编码数据），
EstimatorTokenizer 按字符数估算（区分 CJK 与 ASCII），不依赖外部数据。
ForModel 返回带回退的分词器：tiktoken 初始化失败时自动退化为估算器。
*/
package tokenizer
