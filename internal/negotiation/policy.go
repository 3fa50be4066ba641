package negotiation

import (
	"fmt"
	"sort"
)

// RoomPolicy 同一时间段有多个可用教室时的选择策略
type RoomPolicy string

const (
	PolicySmallestFit RoomPolicy = "smallest_fit" // 容量最小者优先，同容量取 id 最小
	PolicyLargestFit  RoomPolicy = "largest_fit"  // 容量最大者优先，同容量取 id 最小
)

// ParseRoomPolicy 解析配置中的策略名，空串视为 smallest_fit
func ParseRoomPolicy(s string) (RoomPolicy, error) {
	switch RoomPolicy(s) {
	case "", PolicySmallestFit:
		return PolicySmallestFit, nil
	case PolicyLargestFit:
		return PolicyLargestFit, nil
	}
	return "", fmt.Errorf("未知的教室选择策略 %q", s)
}

// OrderRooms 按策略返回排好序的副本，首个即首选
func OrderRooms(rooms []Room, p RoomPolicy) []Room {
	out := make([]Room, len(rooms))
	copy(out, rooms)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Capacity != out[j].Capacity {
			if p == PolicyLargestFit {
				return out[i].Capacity > out[j].Capacity
			}
			return out[i].Capacity < out[j].Capacity
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// fits 教室是否满足容量与设备要求
func fits(r Room, req Request) bool {
	return r.Active && r.Capacity >= req.MinCapacity && r.HasEquipment(req.RequiredEquipment)
}
