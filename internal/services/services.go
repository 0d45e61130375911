// Package services 提供业务流程编排
//
// Service 层负责协调平台层和基础设施层，实现应用级用例。
// 核心调度逻辑在 dispatch 层，这里只做编排和状态暴露。
//
// 职责：
//   - 权限检查与授权引导
//   - 与 App 层交互

package services
