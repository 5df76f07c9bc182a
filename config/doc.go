// Copyright (c) tenex Authors.
// Licensed under the MIT License.

// Package config 提供 tenex 服务的配置加载。
//
// 配置由默认值、YAML 文件和环境变量三层叠加得到，
// 并提供到各运行时组件配置结构的转换。
package config
