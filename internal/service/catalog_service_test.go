package service

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/mplazax/software-engineering-agh-sub000/internal/dto"
	"github.com/mplazax/software-engineering-agh-sub000/internal/repository"
)

func setupTestCatalogService() CatalogService {
	rooms := newMockRoomRepo()
	rooms.add("room-a", "A-101", 30)
	rooms.add("room-b", "B-201", 60, "projector")
	rooms.add("room-c", "C-001", 20, "projector", "whiteboard")
	repo := &repository.Repository{
		Room:     rooms,
		TimeSlot: newMockTimeSlotRepo(),
	}
	return NewCatalogService(repo, zap.NewNop())
}

func TestCatalogService_ListTimeSlots(t *testing.T) {
	svc := setupTestCatalogService()

	slots, err := svc.ListTimeSlots(context.Background())
	if err != nil {
		t.Fatalf("ListTimeSlots 应成功: %v", err)
	}
	if len(slots) != 4 {
		t.Fatalf("期望 4 个时间段，实际 %d", len(slots))
	}
	if slots[0].ID != 1 || slots[0].StartTime != "08:00" || slots[0].EndTime != "09:30" {
		t.Errorf("时间应截取为 HH:MM，实际 %+v", slots[0])
	}
}

func TestCatalogService_ListRooms(t *testing.T) {
	svc := setupTestCatalogService()

	cases := []struct {
		name string
		req  dto.RoomListRequest
		want []string
	}{
		{"无过滤", dto.RoomListRequest{}, []string{"A-101", "B-201", "C-001"}},
		{"最小容量", dto.RoomListRequest{MinCapacity: 25}, []string{"A-101", "B-201"}},
		{"设备", dto.RoomListRequest{Equipment: []string{" projector", ""}}, []string{"B-201", "C-001"}},
		{"容量与设备", dto.RoomListRequest{MinCapacity: 25, Equipment: []string{"projector"}}, []string{"B-201"}},
		{"无匹配", dto.RoomListRequest{Equipment: []string{"projector", "organ"}}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			rooms, err := svc.ListRooms(context.Background(), &req)
			if err != nil {
				t.Fatalf("ListRooms 应成功: %v", err)
			}
			if len(rooms) != len(tc.want) {
				t.Fatalf("期望 %v，实际 %+v", tc.want, rooms)
			}
			for i, name := range tc.want {
				if rooms[i].Name != name {
					t.Errorf("第 %d 项期望 %s，实际 %s", i, name, rooms[i].Name)
				}
			}
		})
	}
}

func TestCatalogService_ListRooms_Equipment(t *testing.T) {
	svc := setupTestCatalogService()

	rooms, err := svc.ListRooms(context.Background(), &dto.RoomListRequest{MinCapacity: 50})
	if err != nil {
		t.Fatalf("ListRooms 应成功: %v", err)
	}
	if len(rooms) != 1 || len(rooms[0].Equipment) != 1 || rooms[0].Equipment[0] != "projector" {
		t.Errorf("期望 B-201 带 projector，实际 %+v", rooms)
	}
	if !rooms[0].IsActive || rooms[0].Type != "lecture" {
		t.Errorf("教室属性未映射，实际 %+v", rooms[0])
	}
}
