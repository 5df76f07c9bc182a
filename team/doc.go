// Package team 定义会话团队、分阶段会话计划与阶段内的发言轮转。
//
// Team 在持久化后不再修改；当前阶段下标由 coordinator 持有。
// TurnManager 决定某个事件由哪位参与者发言：用户消息选出主发言人
// （未设置时为第一个参与者），Agent 发出的消息不选择任何人。
package team
