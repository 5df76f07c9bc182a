// Copyright (c) tenex Authors.
// Licensed under the MIT License.

/*
Package coordinator 实现团队负责人（TeamLead）的阶段状态机。

Coordinator 以组合方式包装负责人 Agent、成员 Agent 与 team.TurnManager：
按阶段挑选唯一发言者，收集发言者的会话信号，决定何时进入下一阶段，
并在计划结束时发布唯一一条完成通知。

阶段索引只保存在内存中；进程重启后从持久化的 Team 重建时从第 0 阶段开始。
*/
package coordinator
