package internal

const Version = "0.4.1"
